package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"forge/internal/chat"
	"forge/internal/snapshot"
)

// ImportJSON 将旧版 JSON 会话文件导入 SQLite
// ImportJSON imports legacy session files (one JSON document per session, the
// snapshot fields plus an optional "messages" array) from dir. Sessions
// already in the store are skipped. Files that fail to parse are logged and
// skipped. It returns how many sessions were imported.
func ImportJSON(dir string, store Store, logger *log.Logger) (int, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return 0, nil
	}
	if logger == nil {
		logger = log.Default()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read import dir: %w", err)
	}

	imported := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		snap, messages, err := loadLegacyFile(path)
		if err != nil {
			logger.Printf("skip import %s: %v", path, err)
			continue
		}
		if snap.ID == "" {
			snap.ID = strings.TrimSuffix(e.Name(), ".json")
		}
		if _, err := store.LoadSnapshot(snap.ID); err == nil {
			continue
		}
		if err := store.SaveSnapshot(snap); err != nil {
			logger.Printf("import session %s failed: %v", snap.ID, err)
			continue
		}
		if len(messages) > 0 {
			if err := store.SaveMessages(snap.ID, messages); err != nil {
				logger.Printf("import messages %s failed: %v", snap.ID, err)
				continue
			}
		}
		imported++
	}
	return imported, nil
}

func loadLegacyFile(path string) (snapshot.Snapshot, []chat.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot.Snapshot{}, nil, err
	}
	snap, err := snapshot.Decode(data)
	if err != nil {
		return snapshot.Snapshot{}, nil, err
	}
	var extra struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &extra); err != nil {
		return snapshot.Snapshot{}, nil, err
	}
	return snap, extra.Messages, nil
}
