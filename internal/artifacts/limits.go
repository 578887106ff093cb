package artifacts

// MaxInlineDataBytes caps artifact payloads carried inline on the wire
// type; anything larger stays behind a store reference.
const MaxInlineDataBytes int64 = 1024 * 1024
