package msgpack

// undefinedType is a sentinel used to distinguish, inside a string-keyed
// mapping, a member that should be omitted entirely (the wire format's
// "undefined") from an explicit null member (encoded but present). A
// plain Go nil always means null; assign Undefined to a map value to
// elide that key the way an undefined-valued object member is elided.
type undefinedType struct{}

// Undefined, assigned as a map value, causes that member to be elided
// from the encoded mapping rather than encoded as null.
var Undefined = undefinedType{}

// Ext holds an extension type this package does not interpret (anything
// other than the Date extension, type 0xFF). Decoding any other
// extension type returns one of these, uninterpreted.
type Ext struct {
	Type int8
	Data []byte
}
