package http11

import "strconv"

// syntheticResponse builds a complete minimal HTTP/1.1 response for
// driver-generated error paths: malformed requests, oversized request
// lines/headers/bodies, request-phase timeouts, and unrecovered handler
// faults. These are written directly to the raw net.Conn, bypassing the
// pooled ResponseWriter, since by definition nothing upstream has a
// valid Request/Context to hang a normal response off of.
//
// Error responses are text/plain with a short human phrase and always
// close the connection — a synthetic response is never followed by
// another request on the same connection.
func syntheticResponse(status int) []byte {
	phrase := statusText(status)
	body := phrase + "\n"

	buf := make([]byte, 0, 160+len(body))
	buf = append(buf, getStatusLine(status)...)
	buf = append(buf, "Content-Type: text/plain; charset=utf-8\r\n"...)
	buf = append(buf, "Content-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, "\r\n"...)
	buf = append(buf, "Connection: close\r\n\r\n"...)
	buf = append(buf, body...)
	return buf
}
