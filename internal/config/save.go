package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Save updates the tool settings in the config file. Comments, formatting,
// and unknown sections are preserved by editing the yaml.Node tree instead
// of re-marshaling the whole document.
func Save(configPath string, cfg Config) error {
	data, err := os.ReadFile(configPath) //nolint:gosec // G304: user-chosen config path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{
			Kind:    yaml.DocumentNode,
			Content: []*yaml.Node{{Kind: yaml.MappingNode}},
		}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config root is not a mapping")
	}
	root := doc.Content[0]

	upsertScalar(root, "binary", cfg.Binary)
	upsertScalar(root, "model", cfg.Model)
	upsertScalar(root, "timeout_seconds", fmt.Sprintf("%d", cfg.TimeoutSeconds))
	upsertScalar(root, "auto_timeout", fmt.Sprintf("%t", cfg.AutoTimeout))
	upsertScalar(root, "queue_max", fmt.Sprintf("%d", cfg.QueueMax))
	upsertScalar(root, "orphan_retention_hours", fmt.Sprintf("%d", cfg.OrphanRetentionHours))

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// upsertScalar replaces the value for key in a mapping node, appending the
// key when missing.
func upsertScalar(root *yaml.Node, key, value string) {
	node := &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	for i := 0; i < len(root.Content)-1; i += 2 {
		if root.Content[i].Value == key {
			// Preserve head comments attached to the old value
			node.HeadComment = root.Content[i+1].HeadComment
			node.LineComment = root.Content[i+1].LineComment
			root.Content[i+1] = node
			return
		}
	}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		node,
	)
}

// writeAtomic writes to a temp file in the target directory, then renames.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".quill.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
