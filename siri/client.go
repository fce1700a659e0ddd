package siri

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const requestTimestampFormat = "2006-01-02T15:04:05.000-07:00"

// SOAP-wrapped SIRI service requests. The producer answers both the bare and
// the wrapped form with the same delivery payload, so only the request side
// needs the envelope.
const vehicleMonitoringRequestTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<S:Envelope xmlns:S="http://schemas.xmlsoap.org/soap/envelope/">
  <S:Body>
    <sw:GetVehicleMonitoring xmlns:sw="http://wsdl.siri.org.uk" xmlns:siri="http://www.siri.org.uk/siri">
      <ServiceRequestInfo>
        <siri:RequestTimestamp>%[1]s</siri:RequestTimestamp>
        <siri:RequestorRef>%[2]s</siri:RequestorRef>
        <siri:MessageIdentifier>%[3]s</siri:MessageIdentifier>
      </ServiceRequestInfo>
      <Request version="2.0">
        <siri:RequestTimestamp>%[1]s</siri:RequestTimestamp>
        <siri:LineRef>%[4]s</siri:LineRef>
      </Request>
    </sw:GetVehicleMonitoring>
  </S:Body>
</S:Envelope>`

const linesDiscoveryRequestTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<S:Envelope xmlns:S="http://schemas.xmlsoap.org/soap/envelope/">
  <S:Body>
    <sw:LinesDiscovery xmlns:sw="http://wsdl.siri.org.uk" xmlns:siri="http://www.siri.org.uk/siri">
      <Request version="2.0">
        <siri:RequestTimestamp>%s</siri:RequestTimestamp>
        <siri:RequestorRef>%s</siri:RequestorRef>
        <siri:MessageIdentifier>%s</siri:MessageIdentifier>
      </Request>
    </sw:LinesDiscovery>
  </S:Body>
</S:Envelope>`

// Client issues requests against the operator's SIRI web service,
// authenticated by a requestor reference.
type Client struct {
	endpoint     string
	requestorRef string
	httpClient   *http.Client
}

func NewClient(endpoint, requestorRef string, timeout time.Duration) *Client {
	return &Client{
		endpoint:     endpoint,
		requestorRef: requestorRef,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// VehicleMonitoring fetches the monitored vehicle activity for one line.
func (c *Client) VehicleMonitoring(ctx context.Context, lineRef string) ([]*VehicleActivity, error) {
	now := time.Now().Format(requestTimestampFormat)
	body := fmt.Sprintf(vehicleMonitoringRequestTemplate, now, c.requestorRef, c.messageIdentifier(), lineRef)

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("vehicle monitoring for line %s: %w", lineRef, err)
	}
	defer resp.Close()

	activities, err := decodeVehicleActivity(resp)
	if err != nil {
		return nil, fmt.Errorf("vehicle monitoring for line %s: %w", lineRef, err)
	}
	return activities, nil
}

// LinesDiscovery enumerates the lines the SIRI service monitors. Used only to
// pre-filter which routes are worth polling.
func (c *Client) LinesDiscovery(ctx context.Context) ([]string, error) {
	now := time.Now().Format(requestTimestampFormat)
	body := fmt.Sprintf(linesDiscoveryRequestTemplate, now, c.requestorRef, c.messageIdentifier())

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("lines discovery: %w", err)
	}
	defer resp.Close()

	lines, err := decodeAnnotatedLines(resp)
	if err != nil {
		return nil, fmt.Errorf("lines discovery: %w", err)
	}

	log.Debug().Int("lines", len(lines)).Msg("Discovered monitored lines")
	return lines, nil
}

func (c *Client) post(ctx context.Context, body string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBufferString(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, c.endpoint)
	}
	return resp.Body, nil
}

func (c *Client) messageIdentifier() string {
	return fmt.Sprintf("%s:%d", c.requestorRef, time.Now().UnixNano())
}

// decodeVehicleActivity collects every VehicleActivity element in the
// delivery, wherever the producer nested it.
func decodeVehicleActivity(r io.Reader) ([]*VehicleActivity, error) {
	var activities []*VehicleActivity

	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if tok == nil || err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "VehicleActivity" {
			var activity VehicleActivity
			if err := d.DecodeElement(&activity, &start); err != nil {
				return nil, err
			}
			activities = append(activities, &activity)
		}
	}
	return activities, nil
}

func decodeAnnotatedLines(r io.Reader) ([]string, error) {
	var lines []string

	d := xml.NewDecoder(r)
	for {
		tok, err := d.Token()
		if tok == nil || err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		if start, ok := tok.(xml.StartElement); ok && start.Name.Local == "AnnotatedLineRef" {
			var line AnnotatedLineRef
			if err := d.DecodeElement(&line, &start); err != nil {
				return nil, err
			}
			if line.LineRef != "" {
				lines = append(lines, line.LineRef)
			}
		}
	}
	return lines, nil
}
