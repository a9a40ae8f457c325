package epub

import (
	"archive/zip"
	"io"

	"github.com/pkg/errors"
)

// Book is an open EPUB archive with its reading order resolved. Callers must
// Close it when done.
type Book struct {
	zr    *zip.ReadCloser
	files map[string]*zip.File
	spine []string
}

// Open opens the EPUB archive at filePath and resolves its spine. It returns
// an error when the archive can't be read, when container.xml or the OPF file
// is missing or unparseable, or when the resolved spine is empty.
func Open(filePath string) (*Book, error) {
	zr, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open epub archive")
	}

	book := &Book{
		zr:    zr,
		files: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		book.files[f.Name] = f
	}

	if err := book.resolveSpine(); err != nil {
		_ = zr.Close()
		return nil, err
	}

	return book, nil
}

// Spine returns the archive paths of the spine documents in reading order.
func (b *Book) Spine() []string {
	return b.spine
}

// ReadFile returns the raw contents of an archive entry.
func (b *Book) ReadFile(name string) ([]byte, error) {
	f, ok := b.files[name]
	if !ok {
		return nil, errors.Errorf("file %q not found in archive", name)
	}
	r, err := f.Open()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

// ChapterText extracts the readable text of a spine document.
func (b *Book) ChapterText(name string) (string, ExtractionMethod, error) {
	data, err := b.ReadFile(name)
	if err != nil {
		return "", "", err
	}
	text, method := ExtractText(data)
	return text, method, nil
}

// Close releases the underlying archive.
func (b *Book) Close() error {
	return errors.WithStack(b.zr.Close())
}

func (b *Book) resolveSpine() error {
	containerFile, ok := b.files[containerPath]
	if !ok {
		return errors.New("archive has no META-INF/container.xml")
	}

	containerBytes, err := b.ReadFile(containerFile.Name)
	if err != nil {
		return err
	}
	opfPath, err := parseContainer(containerBytes)
	if err != nil {
		return err
	}

	opfBytes, err := b.ReadFile(opfPath)
	if err != nil {
		return errors.Wrapf(err, "package document %q is missing", opfPath)
	}
	spine, err := parseSpine(opfPath, opfBytes)
	if err != nil {
		return err
	}
	if len(spine) == 0 {
		return errors.New("package document has an empty spine")
	}

	b.spine = spine
	return nil
}
