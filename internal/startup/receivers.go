package startup

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"

	"media-catalog/internal/catalog"
	"media-catalog/internal/ingest"
	"media-catalog/internal/logging"
)

// ReceiverFile is the TOML document declaring custom ingestion
// receivers. Receivers are tried in file order; entries no receiver
// matches fall through to the built-in default.
type ReceiverFile struct {
	Receivers []ReceiverDef `toml:"receivers"`
}

// ReceiverDef declares one receiver: which queued paths it claims and
// what metadata it stamps onto them.
type ReceiverDef struct {
	Name       string   `toml:"name"`
	Root       string   `toml:"root,omitempty"`
	Extensions []string `toml:"extensions,omitempty"`
	Match      string   `toml:"match,omitempty"`
	Tags       []string `toml:"tags,omitempty"`
	Stars      *int     `toml:"stars,omitempty"`
	SourceURL  string   `toml:"source_url,omitempty"`
}

// ReadReceivers decodes receiver definitions from the provided reader.
func ReadReceivers(r io.Reader) ([]ingest.Receiver, error) {
	var file ReceiverFile
	if _, err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode receivers: %w", err)
	}

	seen := make(map[string]bool, len(file.Receivers))
	receivers := make([]ingest.Receiver, 0, len(file.Receivers))
	for i, def := range file.Receivers {
		if def.Name == "" {
			return nil, fmt.Errorf("receiver %d has no name", i)
		}
		if def.Name == "default" || seen[def.Name] {
			return nil, fmt.Errorf("duplicate or reserved receiver name %q", def.Name)
		}
		seen[def.Name] = true

		recv := &ingest.RuleReceiver{
			ReceiverName: def.Name,
			Root:         def.Root,
			Extensions:   def.Extensions,
			Tags:         def.Tags,
		}
		if def.Match != "" {
			pattern, err := regexp.Compile(def.Match)
			if err != nil {
				return nil, fmt.Errorf("receiver %q has invalid match pattern: %w", def.Name, err)
			}
			recv.Pattern = pattern
		}
		if def.Stars != nil || def.SourceURL != "" {
			info := &catalog.MediaInfo{Stars: def.Stars}
			if def.SourceURL != "" {
				url := def.SourceURL
				info.SourceURL = &url
			}
			recv.Info = info
		}
		receivers = append(receivers, recv)
	}
	return receivers, nil
}

// LoadReceivers reads receiver definitions from path. An empty path
// means no custom receivers.
func LoadReceivers(path string) ([]ingest.Receiver, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open receivers file: %w", err)
	}
	defer f.Close()

	receivers, err := ReadReceivers(f)
	if err != nil {
		return nil, fmt.Errorf("reading receivers from %s: %w", path, err)
	}
	logging.Info("Loaded %d custom receivers from %s", len(receivers), path)
	return receivers, nil
}
