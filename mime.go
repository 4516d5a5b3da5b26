package smbcore

import "strings"

// mimeTable is the extension -> MIME type lookup used by File.Type (§4.H),
// extended from the spec's literal list with the common safe set the
// retrieval pack's file-serving code favors.
var mimeTable = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".txt":  "text/plain",
	".bin":  "application/octet-stream",
	".pdf":  "application/pdf",
	".json": "application/json",
	".zip":  "application/zip",
}

// mimeForName returns the inferred MIME type for name's extension, or the
// literal "unknown" when unrecognized (§4.H).
func mimeForName(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return "unknown"
	}
	ext := strings.ToLower(name[dot:])
	if mt, ok := mimeTable[ext]; ok {
		return mt
	}
	return "unknown"
}
