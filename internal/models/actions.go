package models

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	ActionTypePrepareSubnet = "prepareSubnet"
	ResultTypePrepareSubnet = "PrepareSubnet"
)

// SubnetServiceAttribute is a name/value pair carried by a subnet request.
type SubnetServiceAttribute struct {
	Name  string `json:"attributeName"`
	Value string `json:"attributeValue"`
}

type PrepareSubnetParams struct {
	CIDR                    string                   `json:"cidr"`
	Alias                   string                   `json:"alias,omitempty"`
	IsPublic                bool                     `json:"isPublic"`
	ConnectToVPN            bool                     `json:"connectToVpn,omitempty"`
	SubnetServiceAttributes []SubnetServiceAttribute `json:"subnetServiceAttributes,omitempty"`
}

// PrepareSubnetAction asks for one subnet to be created or claimed.
type PrepareSubnetAction struct {
	ActionID string              `json:"actionId"`
	Type     string              `json:"type"`
	Params   PrepareSubnetParams `json:"actionParams"`
}

// Attribute returns a subnet service attribute by name, ignoring any
// namespace prefix.
func (a PrepareSubnetAction) Attribute(name string) (string, bool) {
	attrs := make(map[string]string, len(a.Params.SubnetServiceAttributes))
	for _, attr := range a.Params.SubnetServiceAttributes {
		attrs[attr.Name] = attr.Value
	}
	return AttributeIgnoringNamespace(attrs, name)
}

// PrepareCloudInfraResult is the outcome reported back to CloudShell for a
// single action.
type PrepareCloudInfraResult struct {
	Type         string `json:"type"`
	ActionID     string `json:"actionId"`
	Success      bool   `json:"success"`
	InfoMessage  string `json:"infoMessage,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	SubnetID     string `json:"subnetId,omitempty"`
}

func SubnetSuccess(actionID, subnetID string) PrepareCloudInfraResult {
	return PrepareCloudInfraResult{
		Type:        ResultTypePrepareSubnet,
		ActionID:    actionID,
		Success:     true,
		InfoMessage: "PrepareSubnet finished successfully",
		SubnetID:    subnetID,
	}
}

func SubnetFailure(actionID string, err error) PrepareCloudInfraResult {
	return PrepareCloudInfraResult{
		Type:         ResultTypePrepareSubnet,
		ActionID:     actionID,
		Success:      false,
		ErrorMessage: fmt.Sprintf("PrepareSubnet ended with the error: %s", err),
	}
}

type driverRequest struct {
	DriverRequest struct {
		Actions []json.RawMessage `json:"actions"`
	} `json:"driverRequest"`
}

type driverResponse struct {
	DriverResponse struct {
		ActionResults []PrepareCloudInfraResult `json:"actionResults"`
	} `json:"driverResponse"`
}

// DecodePrepareSubnetActions reads a CloudShell driver request and returns
// its prepareSubnet actions in request order. Other action types are skipped.
func DecodePrepareSubnetActions(r io.Reader) ([]PrepareSubnetAction, error) {
	var req driverRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decoding driver request: %w", err)
	}

	var actions []PrepareSubnetAction
	for i, raw := range req.DriverRequest.Actions {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("decoding action %d: %w", i, err)
		}
		if head.Type != ActionTypePrepareSubnet {
			continue
		}

		var a PrepareSubnetAction
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, fmt.Errorf("decoding action %d: %w", i, err)
		}
		if a.ActionID == "" {
			return nil, fmt.Errorf("action %d has no actionId", i)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// EncodeResults writes the results as a CloudShell driver response.
func EncodeResults(w io.Writer, results []PrepareCloudInfraResult) error {
	var resp driverResponse
	resp.DriverResponse.ActionResults = results
	if resp.DriverResponse.ActionResults == nil {
		resp.DriverResponse.ActionResults = []PrepareCloudInfraResult{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
