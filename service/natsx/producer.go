package natsx

import "encoding/json"

// Publish sends raw bytes to subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// PublishJSON marshals v and publishes it.
func (c *Client) PublishJSON(subject string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, raw)
}
