package durablestream

// ParseTimestamp exposes parseTimestamp for testing
var ParseTimestamp = parseTimestamp
