// quillinfo prints the structure of a PDF file: version, encryption
// state, page count, and optionally the extracted text.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/quillpdf/quill/extractor"
	"github.com/quillpdf/quill/observability"
	"github.com/quillpdf/quill/parser"
)

func main() {
	password := flag.String("password", "", "password for encrypted files")
	showText := flag.Bool("text", false, "print extracted page text")
	repair := flag.Bool("recover", false, "rebuild damaged cross-reference tables")
	verbose := flag.Bool("v", false, "log parsing details to stderr")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: quillinfo [flags] <file.pdf>")
		os.Exit(1)
	}
	var logger observability.Logger = observability.NopLogger{}
	if *verbose {
		logger = observability.NewTextLogger(os.Stderr, observability.LevelDebug)
	}
	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillinfo: %v\n", err)
		os.Exit(1)
	}
	r, err := parser.Open(data, parser.Options{Password: *password, Recover: *repair, Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillinfo: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("version:   %s\n", r.Version())
	fmt.Printf("encrypted: %t\n", r.Encrypted())
	if r.Encrypted() {
		p := r.Permissions()
		fmt.Printf("print:     %t\n", p.Print)
		fmt.Printf("modify:    %t\n", p.Modify)
		fmt.Printf("copy:      %t\n", p.Copy)
	}
	if size, ok := r.Trailer().GetInt("Size"); ok {
		fmt.Printf("objects:   %d\n", size-1)
	}

	ex := extractor.New(r)
	pages, err := ex.Pages()
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillinfo: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("pages:     %d\n", len(pages))

	if *showText {
		for i, page := range pages {
			text, err := ex.PageText(page)
			if err != nil {
				fmt.Fprintf(os.Stderr, "quillinfo: page %d: %v\n", i+1, err)
				os.Exit(1)
			}
			fmt.Printf("--- page %d ---\n%s\n", i+1, text)
		}
	}
}
