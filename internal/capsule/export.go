package capsule

// ExportSchemaVersion is written into the JSONL header line.
const ExportSchemaVersion = "1.0"

// ExportHeader is the first line of a JSONL export.
type ExportHeader struct {
	SalonExport   bool   `json:"_salon_export"`
	SchemaVersion string `json:"schema_version"`
	ExportedAt    int64  `json:"exported_at"`
	Count         int    `json:"count"`
}

// ExportRecord is one capsule line in a JSONL export, with its version history.
type ExportRecord struct {
	Capsule
	Versions []Version `json:"versions"`
}
