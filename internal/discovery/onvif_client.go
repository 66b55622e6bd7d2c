package discovery

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/beevik/etree"
)

const (
	nsWSSecurity = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	nsWSUtility  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-utility-1.0.xsd"
	nsONVIFDev   = "http://www.onvif.org/ver10/device/wsdl"

	passwordDigestType = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordDigest"
	nonceEncodingType  = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-soap-message-security-1.0#Base64Binary"
)

// DeviceInfo is the GetDeviceInformation response payload.
type DeviceInfo struct {
	Manufacturer    string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	HardwareID      string
}

// SecurityHeader is a rendered WS-Security UsernameToken.
type SecurityHeader struct {
	Username string
	Digest   string
	NonceB64 string
	Created  string
}

// BuildSecurityHeader computes the UsernameToken password digest:
// Base64(SHA1(nonce ‖ created ‖ password)) over the raw nonce bytes.
// Deterministic given its inputs.
func BuildSecurityHeader(username, password string, nonce []byte, created string) SecurityHeader {
	h := sha1.New()
	h.Write(nonce)
	h.Write([]byte(created))
	h.Write([]byte(password))
	return SecurityHeader{
		Username: username,
		Digest:   base64.StdEncoding.EncodeToString(h.Sum(nil)),
		NonceB64: base64.StdEncoding.EncodeToString(nonce),
		Created:  created,
	}
}

// Client speaks the ONVIF device SOAP service at one endpoint.
type Client struct {
	endpoint string
	username string
	password string
	http     *http.Client
}

func NewClient(ip string, port int, username, password string) *Client {
	if port <= 0 {
		port = 80
	}
	return &Client{
		endpoint: fmt.Sprintf("http://%s/onvif/device_service", net.JoinHostPort(ip, strconv.Itoa(port))),
		username: username,
		password: password,
		http:     &http.Client{Timeout: 5 * time.Second},
	}
}

// GetDeviceInformation asks the device for its identity.
func (c *Client) GetDeviceInformation(ctx context.Context) (*DeviceInfo, error) {
	body := etree.NewElement("tds:GetDeviceInformation")
	body.CreateAttr("xmlns:tds", nsONVIFDev)

	resp, err := c.call(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("get device information: %w", err)
	}

	var parsed struct {
		Body struct {
			Response struct {
				Manufacturer    string
				Model           string
				FirmwareVersion string
				SerialNumber    string
				HardwareId      string
			} `xml:"GetDeviceInformationResponse"`
		}
	}
	if err := xml.Unmarshal(resp, &parsed); err != nil {
		return nil, fmt.Errorf("get device information: parse: %w", err)
	}
	r := parsed.Body.Response
	return &DeviceInfo{
		Manufacturer:    r.Manufacturer,
		Model:           r.Model,
		FirmwareVersion: r.FirmwareVersion,
		SerialNumber:    r.SerialNumber,
		HardwareID:      r.HardwareId,
	}, nil
}

// call wraps the operation element in a SOAP envelope, attaching a
// UsernameToken when credentials are set, and posts it.
func (c *Client) call(ctx context.Context, operation *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	env := doc.CreateElement("s:Envelope")
	env.CreateAttr("xmlns:s", nsSOAPEnvelope)

	header := env.CreateElement("s:Header")
	if c.username != "" {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("nonce: %w", err)
		}
		created := time.Now().UTC().Format(time.RFC3339)
		attachSecurity(header, BuildSecurityHeader(c.username, c.password, nonce, created))
	}

	env.CreateElement("s:Body").AddChild(operation)

	payload, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `application/soap+xml; charset=utf-8; action=""`)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("soap status %d: %s", resp.StatusCode, truncate(string(raw), 256))
	}
	return raw, nil
}

func attachSecurity(header *etree.Element, sec SecurityHeader) {
	s := header.CreateElement("Security")
	s.CreateAttr("xmlns", nsWSSecurity)

	tok := s.CreateElement("UsernameToken")
	tok.CreateElement("Username").SetText(sec.Username)

	pw := tok.CreateElement("Password")
	pw.CreateAttr("Type", passwordDigestType)
	pw.SetText(sec.Digest)

	n := tok.CreateElement("Nonce")
	n.CreateAttr("EncodingType", nonceEncodingType)
	n.SetText(sec.NonceB64)

	created := tok.CreateElement("Created")
	created.CreateAttr("xmlns", nsWSUtility)
	created.SetText(sec.Created)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
