package mcptools

// --- MCP tool input and output types ---
// The SDK derives each tool's JSON schema from these struct tags.

// ShippingETAInput is the input of shipping_eta.
type ShippingETAInput struct {
	Zipcode string `json:"zipcode" jsonschema:"US zipcode, digits only"`
}

// ShippingETAOutput is the result of shipping_eta.
type ShippingETAOutput struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// StartRiskScanInput is the input of start_risk_scan.
type StartRiskScanInput struct {
	OrderID   string `json:"order_id" jsonschema:"order identifier"`
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation the scan belongs to; scopes the 'last' handle"`
}

// ResumeRiskScanInput is the input of resume_risk_scan.
type ResumeRiskScanInput struct {
	Handle    string `json:"handle" jsonschema:"handle returned by start_risk_scan, or 'last'"`
	SessionID string `json:"session_id,omitempty" jsonschema:"conversation used to resolve 'last'"`
}

// FetchNoteInput is the input of fetch_file_note.
type FetchNoteInput struct {
	Filename string `json:"filename" jsonschema:"note file name relative to the notes directory"`
}

// FetchNoteOutput is the result of fetch_file_note.
type FetchNoteOutput struct {
	Content string `json:"content"`
}
