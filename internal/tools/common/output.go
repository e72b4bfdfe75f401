package common

import (
	"encoding/json"
	"io"
	"os"
)

// CIResult is the machine-readable envelope every tool prints under --ci.
type CIResult struct {
	OK      bool     `json:"ok"`
	Title   string   `json:"title"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func PrintCIResult(ok bool, title string, details []string, err error) {
	writeCIResult(os.Stdout, ok, title, details, err)
}

func writeCIResult(w io.Writer, ok bool, title string, details []string, err error) {
	res := CIResult{OK: ok, Title: title, Details: details}
	if err != nil {
		res.Error = err.Error()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}
