package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"device-rpc/internal/rpc"
)

var (
	green  = color.New(color.FgGreen).SprintfFunc()
	red    = color.New(color.FgRed).SprintfFunc()
	yellow = color.New(color.FgYellow).SprintfFunc()
	bold   = color.New(color.Bold).SprintfFunc()
)

// checkStatus prints the failure of a non-OK call and returns it as error
func checkStatus(w io.Writer, what string, st rpc.Status) error {
	if st.OK() {
		return nil
	}
	fmt.Fprintln(w, red("%s failed: [%d] %s", what, int(st.Code), st.Message))
	return st.Err()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
