// Typed wrappers over the generic Invoke entry point, one per known remote
// operation. New host-defined commands need no change here (tools call
// Invoke directly); these exist so the common surface is discoverable and
// type-checked.
package client

import (
	"fmt"

	"dcclink/dcc"
	"dcclink/message"
)

// Ping probes server liveness. It succeeds whenever the server is reachable,
// regardless of prior request history.
func (c *Client) Ping() bool {
	_, err := c.Invoke("ping", nil, nil)
	return err == nil
}

// Echo sends text and returns the server's echo of it.
func (c *Client) Echo(text string) (string, error) {
	result, err := c.Invoke("echo", nil, map[string]any{"text": text})
	if err != nil {
		return "", err
	}
	s, _ := result.(string)
	return s, nil
}

// SetTitle sets the host window title.
func (c *Client) SetTitle(title string) error {
	_, err := c.Invoke("set_title", nil, map[string]any{"title": title})
	return err
}

// SelectNode selects a node in the host scene, optionally adding to the
// current selection.
func (c *Client) SelectNode(node string, addToSelection bool) error {
	_, err := c.Invoke("select_node", nil, map[string]any{
		"node":             node,
		"add_to_selection": addToSelection,
	})
	return err
}

// SelectedNodes returns the host's current selection.
func (c *Client) SelectedNodes(fullPath bool) ([]string, error) {
	result, err := c.Invoke("selected_nodes", nil, map[string]any{"full_path": fullPath})
	if err != nil {
		return nil, err
	}
	return toStrings(result), nil
}

// ClearSelection empties the host's selection.
func (c *Client) ClearSelection() error {
	_, err := c.Invoke("clear_selection", nil, nil)
	return err
}

// ControlColors returns the host's rig control color palette.
func (c *Client) ControlColors() ([]any, error) {
	result, err := c.Invoke("get_control_colors", nil, nil)
	if err != nil {
		return nil, err
	}
	list, _ := result.([]any)
	return list, nil
}

// Fonts returns the fonts available in the host.
func (c *Client) Fonts() ([]string, error) {
	result, err := c.Invoke("get_fonts", nil, nil)
	if err != nil {
		return nil, err
	}
	return toStrings(result), nil
}

// EnableUndo re-enables the host undo queue.
func (c *Client) EnableUndo() error {
	_, err := c.Invoke("enable_undo", nil, nil)
	return err
}

// DisableUndo suspends the host undo queue.
func (c *Client) DisableUndo() error {
	_, err := c.Invoke("disable_undo", nil, nil)
	return err
}

// Sleep asks the server to block for the given number of seconds. The call
// runs into the client timeout when seconds exceeds it; see the transport's
// discard handling for what happens to the late reply.
func (c *Client) Sleep(seconds float64) error {
	_, err := c.Invoke("sleep", nil, map[string]any{"seconds": seconds})
	return err
}

// HostInfo returns the identity of the host application behind the server.
func (c *Client) HostInfo() (dcc.Context, error) {
	result, err := c.Invoke("get_host_info", nil, nil)
	if err != nil {
		return dcc.Context{}, err
	}
	info, ok := result.(map[string]any)
	if !ok {
		return dcc.Context{}, fmt.Errorf("malformed host info: %T", result)
	}
	ctx := dcc.Context{}
	if name, ok := info["name"].(string); ok {
		ctx.App = dcc.App(name)
	}
	ctx.Version, _ = info["version"].(string)
	if pid, ok := info["pid"].(float64); ok {
		ctx.PID = int(pid)
	}
	return ctx, nil
}

// VerifyHost checks the connected host against a supported-apps table
// (app → allowed versions; an empty version list allows any). The outcome
// lands in the status record either way.
func (c *Client) VerifyHost(supported map[dcc.App][]string) error {
	if !c.Connected() {
		c.setStatus("Not connected to any host application", message.LevelWarning)
		return ErrNotConnected
	}

	host, err := c.HostInfo()
	if err != nil {
		return err
	}

	if len(supported) > 0 {
		versions, ok := supported[host.App]
		if !ok {
			msg := fmt.Sprintf("Connected host %s (%s) is not supported!", host.App, host.Version)
			c.setStatus(msg, message.LevelWarning)
			return fmt.Errorf("%s", msg)
		}
		if len(versions) > 0 && !contains(versions, host.Version) {
			msg := fmt.Sprintf("Connected host %s is supported but version %s is not!", host.App, host.Version)
			c.setStatus(msg, message.LevelWarning)
			return fmt.Errorf("%s", msg)
		}
	}

	msg := fmt.Sprintf("Connected to: %s %s (%d)", host.App, host.Version, host.PID)
	c.setStatus(msg, message.LevelSuccess)
	c.logger.Info(msg)
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func toStrings(result any) []string {
	list, ok := result.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
