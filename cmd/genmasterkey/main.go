package main

import (
	"flag"
	"fmt"
	"os"

	"ulift/internal/crypto"
	"ulift/internal/files"
)

func main() {
	keyFile := flag.String("out", "master.key", "where to write the hex master key")
	flag.Parse()

	if err := files.WriteMasterKey(*keyFile, crypto.GenerateMasterKey()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Master key written to %s\n", *keyFile)
}
