package rtspbase

import (
	"bufio"
	"fmt"
)

// Request is an RTSP request.
type Request struct {
	Method  Method
	URL     *URL
	Header  Header
	Content []byte
}

// Read reads a request from rb using the standard RTSP line-by-line
// grammar.
func (req *Request) Read(rb *bufio.Reader) error {
	byts, err := readBytesLimited(rb, ' ', requestMaxMethodLength)
	if err != nil {
		return err
	}
	req.Method = Method(byts[:len(byts)-1])
	if req.Method == "" {
		return fmt.Errorf("empty method")
	}

	byts, err = readBytesLimited(rb, ' ', requestMaxPathLength)
	if err != nil {
		return err
	}
	rawURL := string(byts[:len(byts)-1])
	if rawURL == "" {
		return fmt.Errorf("empty url")
	}

	ur, err := ParseURL(rawURL)
	if err != nil {
		return fmt.Errorf("unable to parse url (%v): %w", rawURL, err)
	}
	req.URL = ur

	byts, err = readBytesLimited(rb, '\r', requestMaxProtocolLength)
	if err != nil {
		return err
	}
	proto := string(byts[:len(byts)-1])
	if proto != rtspProtocol10 {
		return fmt.Errorf("expected '%s', got '%s'", rtspProtocol10, proto)
	}

	if err := readByteEqual(rb, '\n'); err != nil {
		return err
	}

	req.Header = make(Header)
	if err := req.Header.read(rb); err != nil {
		return err
	}

	return (*payload)(&req.Content).read(rb, req.Header)
}
