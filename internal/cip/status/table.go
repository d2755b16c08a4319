package status

// table maps a general status code to the messages of its extended codes.
// Extended code 0x00 doubles as the general message. It is never written
// after package initialisation.
var table = map[uint8]map[uint8]string{
	0x00: {
		0x00: "Success",
	},
	0x01: {
		0x00: "Connection failure",
		0x01: "Resource unavailable",
		0x02: "Invalid segment value",
		0x03: "Invalid attribute value",
		0x04: "Invalid service",
		0x05: "Invalid class",
		0x06: "Invalid instance",
		0x07: "Invalid connection point",
		0x08: "Invalid connection ID",
		0x09: "Connection timeout",
		0x0A: "Connection already exists",
		0x0B: "Connection does not exist",
		0x0C: "Connection in use",
		0x0D: "Connection not established",
		0x0E: "Connection failed",
		0x0F: "Connection lost",
	},
	0x02: {
		0x00: "Resource unavailable",
		0x01: "Invalid segment value",
		0x02: "Invalid attribute value",
		0x03: "Invalid service",
		0x04: "Invalid class",
		0x05: "Invalid instance",
		0x06: "Invalid connection point",
		0x07: "Invalid connection ID",
		0x08: "Connection timeout",
		0x09: "Connection already exists",
		0x0A: "Connection does not exist",
		0x0B: "Connection in use",
		0x0C: "Connection not established",
		0x0D: "Connection failed",
		0x0E: "Connection lost",
	},
	0x03: {
		0x00: "Value invalid",
		0x01: "Invalid segment value",
		0x02: "Invalid attribute value",
		0x03: "Invalid service",
		0x04: "Invalid class",
		0x05: "Invalid instance",
		0x06: "Invalid connection point",
		0x07: "Invalid connection ID",
		0x08: "Connection timeout",
		0x09: "Connection already exists",
		0x0A: "Connection does not exist",
		0x0B: "Connection in use",
		0x0C: "Connection not established",
		0x0D: "Connection failed",
		0x0E: "Connection lost",
	},
	0x04: {
		0x00: "Malformed data",
		0x01: "Invalid segment value",
		0x02: "Invalid attribute value",
		0x03: "Invalid service",
		0x04: "Invalid class",
		0x05: "Invalid instance",
	},
	0x05: {
		0x00: "Insufficient data",
		0x01: "Invalid segment value",
		0x02: "Invalid attribute value",
		0x03: "Invalid service",
	},
	0x06: {
		0x00: "Attribute not supported",
		0x01: "Invalid segment value",
		0x02: "Invalid attribute value",
		0x03: "Invalid service",
	},
	0x07: {
		0x00: "Too much data",
		0x01: "Invalid segment value",
		0x02: "Invalid attribute value",
	},
	0x08: {
		0x00: "Object does not exist",
		0x01: "Invalid segment value",
		0x02: "Invalid attribute value",
	},
	0x09: {
		0x00: "No stored attribute data",
		0x01: "Invalid segment value",
	},
	0x0A: {
		0x00: "Store operation failure",
		0x01: "Invalid segment value",
	},
	0x0B: routingFailure,
	0x0C: routingFailure,
	0x0D: routingFailure,
	0x0E: routingFailure,
	0x0F: routingFailure,
	0x10: routingFailure,
	0x11: routingFailure,
	0x12: routingFailure,
	0x13: routingFailure,
	0x14: routingFailure,
	0x15: routingFailure,
	0x16: routingFailure,
	0x17: routingFailure,
	0x18: routingFailure,
	0x19: routingFailure,
	0x1A: routingFailure,
	0x1B: routingFailure,
	0x1C: routingFailure,
	0x1D: routingFailure,
	0x1E: routingFailure,
	0x1F: routingFailure,
	0x20: {
		0x00: "General error",
		0x01: "Invalid segment value",
		0x02: "Invalid attribute value",
		0x03: "Invalid service",
		0x04: "Invalid class",
		0x05: "Invalid instance",
	},
}

var routingFailure = map[uint8]string{
	0x00: "Routing failure, request packet too large",
	0x01: "Routing failure, response packet too large",
	0x02: "Routing failure, invalid segment value",
	0x03: "Routing failure, invalid attribute value",
}
