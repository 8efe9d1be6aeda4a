package http11

// ParseMethodID identifies an HTTP method token by length-then-byte
// comparison rather than a string-equality call, so the hot parse path
// never allocates to compare a method token. Unrecognized tokens
// (including lowercase or malformed input — method names are
// case-sensitive per RFC 7230 §3.1.1) return MethodUnknown.
func ParseMethodID(method []byte) uint8 {
	switch len(method) {
	case 3:
		if method[0] == 'G' && method[1] == 'E' && method[2] == 'T' {
			return MethodGET
		}
		if method[0] == 'P' && method[1] == 'U' && method[2] == 'T' {
			return MethodPUT
		}
	case 4:
		if method[0] == 'P' && method[1] == 'O' && method[2] == 'S' && method[3] == 'T' {
			return MethodPOST
		}
		if method[0] == 'H' && method[1] == 'E' && method[2] == 'A' && method[3] == 'D' {
			return MethodHEAD
		}
	case 5:
		if method[0] == 'P' && method[1] == 'A' && method[2] == 'T' && method[3] == 'C' && method[4] == 'H' {
			return MethodPATCH
		}
		if method[0] == 'T' && method[1] == 'R' && method[2] == 'A' && method[3] == 'C' && method[4] == 'E' {
			return MethodTRACE
		}
	case 6:
		if method[0] == 'D' && method[1] == 'E' && method[2] == 'L' &&
			method[3] == 'E' && method[4] == 'T' && method[5] == 'E' {
			return MethodDELETE
		}
	case 7:
		if method[0] == 'O' && method[1] == 'P' && method[2] == 'T' &&
			method[3] == 'I' && method[4] == 'O' && method[5] == 'N' && method[6] == 'S' {
			return MethodOPTIONS
		}
		if method[0] == 'C' && method[1] == 'O' && method[2] == 'N' &&
			method[3] == 'N' && method[4] == 'E' && method[5] == 'C' && method[6] == 'T' {
			return MethodCONNECT
		}
	}
	return MethodUnknown
}

// methodStrings and methodByteSlices are indexed by method ID (0 =
// MethodUnknown, unused) so MethodString/MethodBytes are a single slice
// index instead of a ten-armed switch.
var methodStrings = [...]string{
	MethodUnknown: "",
	MethodGET:     methodGETString,
	MethodPOST:    methodPOSTString,
	MethodPUT:     methodPUTString,
	MethodDELETE:  methodDELETEString,
	MethodPATCH:   methodPATCHString,
	MethodHEAD:    methodHEADString,
	MethodOPTIONS: methodOPTIONSString,
	MethodCONNECT: methodCONNECTString,
	MethodTRACE:   methodTRACEString,
}

var methodByteSlices = [...][]byte{
	MethodUnknown: nil,
	MethodGET:     methodGETBytes,
	MethodPOST:    methodPOSTBytes,
	MethodPUT:     methodPUTBytes,
	MethodDELETE:  methodDELETEBytes,
	MethodPATCH:   methodPATCHBytes,
	MethodHEAD:    methodHEADBytes,
	MethodOPTIONS: methodOPTIONSBytes,
	MethodCONNECT: methodCONNECTBytes,
	MethodTRACE:   methodTRACEBytes,
}

// MethodString returns the canonical token for a method ID, or "" for
// MethodUnknown or an out-of-range id.
func MethodString(id uint8) string {
	if int(id) >= len(methodStrings) {
		return ""
	}
	return methodStrings[id]
}

// MethodBytes is MethodString's []byte counterpart, for writing a method
// token without a string-to-bytes conversion.
func MethodBytes(id uint8) []byte {
	if int(id) >= len(methodByteSlices) {
		return nil
	}
	return methodByteSlices[id]
}

// IsValidMethodID reports whether id names one of the nine recognized
// methods (i.e. is not MethodUnknown).
func IsValidMethodID(id uint8) bool {
	return id >= MethodGET && id <= MethodTRACE
}
