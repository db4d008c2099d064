// quillgen writes a one page PDF with the given text, optionally
// compressed and encrypted.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/quillpdf/quill/builder"
	"github.com/quillpdf/quill/font"
	"github.com/quillpdf/quill/security"
)

func main() {
	out := flag.String("o", "out.pdf", "output file")
	text := flag.String("text", "Hello, World!", "text to show")
	size := flag.Float64("size", 24, "font size in points")
	face := flag.String("font", "Helvetica", "standard font name")
	title := flag.String("title", "", "document title")
	user := flag.String("user", "", "user password (enables encryption)")
	owner := flag.String("owner", "", "owner password")
	compress := flag.Bool("compress", false, "deflate content streams")
	flag.Parse()

	f, ok := font.ByName(*face)
	if !ok {
		fmt.Fprintf(os.Stderr, "quillgen: unknown font %q\n", *face)
		os.Exit(1)
	}

	b := builder.New().
		WithTitle(*title).
		WithCompression(*compress).
		AddPage(builder.NewPage(builder.A4).
			WithFont("F1", f).
			Text("F1", *size, 72, 750, *text))
	if *user != "" || *owner != "" {
		b = b.WithEncryption(security.Options{
			UserPassword:  *user,
			OwnerPassword: *owner,
			Permissions:   security.AllPermissions(),
		})
	}

	file, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillgen: %v\n", err)
		os.Exit(1)
	}
	if err := b.Save(file); err != nil {
		file.Close()
		fmt.Fprintf(os.Stderr, "quillgen: %v\n", err)
		os.Exit(1)
	}
	if err := file.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "quillgen: %v\n", err)
		os.Exit(1)
	}
}
