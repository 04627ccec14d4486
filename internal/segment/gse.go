package segment

import (
	"fmt"
	"os"

	"github.com/go-ego/gse"
)

type gseEngine struct {
	seg gse.Segmenter
}

// GSELoader loads the gse segmenter. With an empty dictPath the embedded
// Simplified Chinese dictionary is used.
func GSELoader(dictPath string) Loader {
	return func() (Engine, error) {
		var files []string
		if dictPath != "" {
			if _, err := os.Stat(dictPath); err != nil {
				return nil, fmt.Errorf("gse dictionary: %w", err)
			}
			files = append(files, dictPath)
		}
		seg, err := gse.New(files...)
		if err != nil {
			return nil, fmt.Errorf("load gse: %w", err)
		}
		return &gseEngine{seg: seg}, nil
	}
}

func (g *gseEngine) Cut(text string) ([]string, error) {
	return g.seg.Cut(text, true), nil
}
