package main

import (
	"fmt"
	"os"

	"github.com/cris160/exploit-prover/cmd"
	"github.com/cris160/exploit-prover/output"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(int(output.ExitCodeError))
	}
}
