package epub

import (
	"encoding/xml"
	"net/url"
	"path"

	"github.com/pkg/errors"
)

const containerPath = "META-INF/container.xml"

// containerDocument maps META-INF/container.xml, which points at the OPF
// package document.
type containerDocument struct {
	XMLName   xml.Name `xml:"container"`
	Rootfiles struct {
		Rootfile []struct {
			FullPath  string `xml:"full-path,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"rootfile"`
	} `xml:"rootfiles"`
}

// packageDocument maps the parts of an OPF file needed to resolve reading
// order: the manifest (id to href) and the spine (ordered idrefs).
type packageDocument struct {
	XMLName  xml.Name `xml:"package"`
	Version  string   `xml:"version,attr"`
	Manifest struct {
		Item []struct {
			ID        string `xml:"id,attr"`
			Href      string `xml:"href,attr"`
			MediaType string `xml:"media-type,attr"`
		} `xml:"item"`
	} `xml:"manifest"`
	Spine struct {
		Itemref []struct {
			Idref string `xml:"idref,attr"`
		} `xml:"itemref"`
	} `xml:"spine"`
}

// parseContainer returns the path of the OPF file referenced by
// container.xml. Some EPUBs declare multiple rootfiles for alternate
// renditions; only the first one is used.
func parseContainer(b []byte) (string, error) {
	doc := &containerDocument{}
	if err := xml.Unmarshal(b, doc); err != nil {
		return "", errors.Wrap(err, "failed to parse container.xml")
	}
	if len(doc.Rootfiles.Rootfile) == 0 {
		return "", errors.New("container.xml declares no rootfiles")
	}
	return doc.Rootfiles.Rootfile[0].FullPath, nil
}

// parseSpine returns the archive paths of the spine documents in reading
// order. Spine itemrefs that point at a missing manifest item are dropped.
func parseSpine(opfPath string, b []byte) ([]string, error) {
	pkg := &packageDocument{}
	if err := xml.Unmarshal(b, pkg); err != nil {
		return nil, errors.Wrap(err, "failed to parse package document")
	}

	// All manifest hrefs are relative to the directory that holds the OPF
	// file, which is not necessarily the archive root.
	baseDir := path.Dir(opfPath)

	hrefByID := make(map[string]string, len(pkg.Manifest.Item))
	for _, item := range pkg.Manifest.Item {
		if item.ID == "" || item.Href == "" {
			continue
		}
		hrefByID[item.ID] = resolveHref(baseDir, item.Href)
	}

	spine := make([]string, 0, len(pkg.Spine.Itemref))
	for _, ref := range pkg.Spine.Itemref {
		href, ok := hrefByID[ref.Idref]
		if !ok {
			continue
		}
		spine = append(spine, href)
	}

	return spine, nil
}

// resolveHref turns a manifest href into a normalized archive path. Hrefs can
// be URL-escaped and can climb out of the OPF directory with "..".
func resolveHref(baseDir, href string) string {
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}
	if baseDir == "." {
		return path.Clean(href)
	}
	return path.Clean(path.Join(baseDir, href))
}
