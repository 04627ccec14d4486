// Package dictionary provides short-word lookups backed by a CC-CEDICT
// export.
//
// Two on-disk formats are accepted: a JSON object keyed by headword
// ({"word": {"pinyin": "...", "definitions": ["..."]}}) and the raw
// cedict_ts.u8 text format. Raw entries are indexed by both simplified and
// traditional headwords; repeated headwords merge their definitions.
package dictionary
