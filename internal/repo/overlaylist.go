package repo

import (
	"encoding/json"
	"encoding/xml"

	"github.com/pkg/errors"
)

// RemoteOverlay is one entry of a published overlay list: enough to seed
// a Manager.Add call once the user opts in.
type RemoteOverlay struct {
	Name      string
	Transport Transport
	Remote    string
	Owner     string
	Quality   string
}

// gentooRepoList mirrors the subset of Gentoo's repositories.xml schema
// corebrew understands: a flat <repositories><repo>...</repo></repositories>
// document. Unknown elements are ignored by encoding/xml by default,
// which is exactly the forward-compatible behavior a fixed third-party
// wire format like this needs.
type gentooRepoList struct {
	XMLName xml.Name     `xml:"repositories"`
	Repos   []gentooRepo `xml:"repo"`
}

type gentooRepo struct {
	Name    string           `xml:"name"`
	Quality string           `xml:"quality,attr"`
	Owner   gentooRepoOwner  `xml:"owner"`
	Source  []gentooSource   `xml:"source"`
}

type gentooRepoOwner struct {
	Name string `xml:"name"`
}

type gentooSource struct {
	Type string `xml:"type,attr"`
	URL  string `xml:",chardata"`
}

// ParseGentooRepositoriesXML parses a repositories.xml document into a
// flat list of RemoteOverlay entries, preferring a git source over any
// other transport when an entry offers more than one.
func ParseGentooRepositoriesXML(data []byte) ([]RemoteOverlay, error) {
	var doc gentooRepoList
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "repo: parsing repositories.xml")
	}
	out := make([]RemoteOverlay, 0, len(doc.Repos))
	for _, r := range doc.Repos {
		src := pickSource(r.Source)
		if src == nil {
			continue
		}
		out = append(out, RemoteOverlay{
			Name:      r.Name,
			Transport: transportOf(src.Type),
			Remote:    src.URL,
			Owner:     r.Owner.Name,
			Quality:   r.Quality,
		})
	}
	return out, nil
}

func pickSource(sources []gentooSource) *gentooSource {
	var fallback *gentooSource
	for i := range sources {
		if sources[i].Type == "git" {
			return &sources[i]
		}
		if fallback == nil {
			fallback = &sources[i]
		}
	}
	return fallback
}

func transportOf(kind string) Transport {
	switch kind {
	case "git":
		return TransportGit
	case "mercurial", "hg":
		return TransportHg
	case "svn", "subversion":
		return TransportSvn
	case "bzr":
		return TransportBzr
	case "rsync":
		return TransportRsync
	default:
		return TransportHTTP
	}
}

// jsonOverlayEntry is the shape of one entry in a JSON-published overlay
// list, the more common modern alternative to repositories.xml.
type jsonOverlayEntry struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Remote    string `json:"remote"`
	Owner     string `json:"owner"`
	Quality   string `json:"quality"`
}

// ParseJSONOverlayList parses a JSON-encoded array of overlay entries.
func ParseJSONOverlayList(data []byte) ([]RemoteOverlay, error) {
	var entries []jsonOverlayEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "repo: parsing JSON overlay list")
	}
	out := make([]RemoteOverlay, 0, len(entries))
	for _, e := range entries {
		out = append(out, RemoteOverlay{
			Name:      e.Name,
			Transport: transportOf(e.Transport),
			Remote:    e.Remote,
			Owner:     e.Owner,
			Quality:   e.Quality,
		})
	}
	return out, nil
}
