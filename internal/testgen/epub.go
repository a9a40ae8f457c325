package testgen

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// Chapter describes one spine document in a generated EPUB.
type Chapter struct {
	// Filename is the archive path relative to the OPF directory, e.g.
	// "chapter1.xhtml" or "text/part0001.html".
	Filename string
	// Body is inner HTML placed inside the document's <body>.
	Body string
	// Raw, when set, is written verbatim as the file contents instead of the
	// XHTML wrapper around Body. Useful for malformed documents.
	Raw string
	// OmitFile declares the chapter in the manifest and spine without writing
	// the file into the archive.
	OmitFile bool
}

// EPUBOptions controls the shape of a generated EPUB, including several ways
// to break it for error-path tests.
type EPUBOptions struct {
	Title    string
	Chapters []Chapter

	// OmitContainer drops META-INF/container.xml.
	OmitContainer bool
	// OmitOPF drops the package document that container.xml points at.
	OmitOPF bool
	// EmptySpine writes a package document whose spine has no itemrefs.
	EmptySpine bool
	// DanglingIdrefs adds spine itemrefs that reference no manifest item.
	DanglingIdrefs []string
}

// GenerateEPUB creates a valid EPUB file at the specified path with the given
// options. The generated EPUB contains mimetype, container.xml, a package
// document under OEBPS/, and one file per chapter.
func GenerateEPUB(t *testing.T, dir, filename string, opts EPUBOptions) string {
	t.Helper()

	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create EPUB file: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	// mimetype must be first and uncompressed
	mimetypeHeader := &zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	}
	w, err := zw.CreateHeader(mimetypeHeader)
	if err != nil {
		t.Fatalf("failed to create mimetype entry: %v", err)
	}
	if _, err := w.Write([]byte("application/epub+zip")); err != nil {
		t.Fatalf("failed to write mimetype: %v", err)
	}

	if !opts.OmitContainer {
		containerXML := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`
		if err := writeZipFile(zw, "META-INF/container.xml", []byte(containerXML)); err != nil {
			t.Fatalf("failed to write container.xml: %v", err)
		}
	}

	if !opts.OmitOPF {
		opfContent := generateOPF(opts)
		if err := writeZipFile(zw, "OEBPS/content.opf", []byte(opfContent)); err != nil {
			t.Fatalf("failed to write content.opf: %v", err)
		}
	}

	for _, ch := range opts.Chapters {
		if ch.OmitFile {
			continue
		}
		contents := ch.Raw
		if contents == "" {
			contents = fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head></head>
<body>%s</body>
</html>`, ch.Body)
		}
		if err := writeZipFile(zw, "OEBPS/"+ch.Filename, []byte(contents)); err != nil {
			t.Fatalf("failed to write chapter %s: %v", ch.Filename, err)
		}
	}

	return path
}

func generateOPF(opts EPUBOptions) string {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package version="3.0" xmlns="http://www.idpf.org/2007/opf" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
`)

	if opts.Title != "" {
		buf.WriteString(fmt.Sprintf("    <dc:title id=\"title\">%s</dc:title>\n", escapeXML(opts.Title)))
	}
	buf.WriteString("    <dc:identifier id=\"bookid\">urn:uuid:test-book-id</dc:identifier>\n")
	buf.WriteString("    <dc:language>en</dc:language>\n")
	buf.WriteString("  </metadata>\n")

	buf.WriteString("  <manifest>\n")
	for i, ch := range opts.Chapters {
		buf.WriteString(fmt.Sprintf("    <item id=\"chapter%d\" href=\"%s\" media-type=\"application/xhtml+xml\"/>\n", i+1, escapeXML(ch.Filename)))
	}
	buf.WriteString("  </manifest>\n")

	buf.WriteString("  <spine>\n")
	if !opts.EmptySpine {
		for i := range opts.Chapters {
			buf.WriteString(fmt.Sprintf("    <itemref idref=\"chapter%d\"/>\n", i+1))
		}
		for _, idref := range opts.DanglingIdrefs {
			buf.WriteString(fmt.Sprintf("    <itemref idref=\"%s\"/>\n", escapeXML(idref)))
		}
	}
	buf.WriteString("  </spine>\n")

	buf.WriteString("</package>")

	return buf.String()
}

func writeZipFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		switch r {
		case '<':
			buf.WriteString("&lt;")
		case '>':
			buf.WriteString("&gt;")
		case '&':
			buf.WriteString("&amp;")
		case '"':
			buf.WriteString("&quot;")
		case '\'':
			buf.WriteString("&apos;")
		default:
			buf.WriteRune(r)
		}
	}
	return buf.String()
}
