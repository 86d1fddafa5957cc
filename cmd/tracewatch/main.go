package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess     = 0 // Run completed, every pair succeeded
	ExitPairsFailed = 1 // Run completed but one or more pairs failed
	ExitError       = 2 // Configuration or runtime error
)

// PairFailureError indicates that a monitoring run finished, but one or
// more scorer/trace pairs failed or timed out.
type PairFailureError struct {
	Message string
}

func (e *PairFailureError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		var pairErr *PairFailureError
		if errors.As(err, &pairErr) {
			os.Exit(ExitPairsFailed)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
