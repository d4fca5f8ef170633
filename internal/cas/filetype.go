package cas

import (
	"path/filepath"
	"strings"
)

var typesByExtension = map[string]string{
	"pdf": "pdf",
	"doc": "document", "docx": "document", "txt": "document", "md": "document",
	"png": "image", "jpg": "image", "jpeg": "image", "gif": "image", "svg": "image", "webp": "image",
	"mp4": "video", "mov": "video", "avi": "video", "mkv": "video",
	"mp3": "audio", "wav": "audio", "flac": "audio",
	"xlsx": "spreadsheet", "xls": "spreadsheet", "csv": "spreadsheet",
	"pptx": "presentation", "ppt": "presentation",
	"js": "code", "ts": "code", "py": "code", "java": "code", "sql": "code", "html": "code", "css": "code", "go": "code",
	"fig": "design", "sketch": "design", "xd": "design",
	"zip": "archive", "rar": "archive", "tar": "archive", "gz": "archive",
}

// DetectType infers a file type from the name's extension.
func DetectType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if t, ok := typesByExtension[ext]; ok {
		return t
	}
	return "other"
}

// breakdownCategory groups file types for the storage breakdown.
func breakdownCategory(fileType string) string {
	switch fileType {
	case "document", "pdf", "spreadsheet":
		return "documents"
	case "image":
		return "images"
	case "video":
		return "videos"
	case "presentation":
		return "presentations"
	case "code":
		return "code"
	default:
		return "other"
	}
}
