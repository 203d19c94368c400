package cluster

import "context"

// RegisterRequest is the wire form of a node announcing itself to a
// coordinator. HostID may be empty; the coordinator then assigns one.
type RegisterRequest struct {
	HostID string `json:"host_id,omitempty"`
	Addr   string `json:"addr"`
}

// RegisterResponse carries the identity the coordinator registered the node
// under.
type RegisterResponse struct {
	HostID HostID `json:"host_id"`
}

// RegisterNode announces a node to the coordinator at coordAddr and returns
// the identity it was registered under.
func RegisterNode(ctx context.Context, coordAddr string, req RegisterRequest) (HostID, error) {
	var resp RegisterResponse
	if err := PostJSON(ctx, coordAddr+"/register", req, &resp); err != nil {
		return HostID{}, err
	}
	return resp.HostID, nil
}

// FetchNodes retrieves the coordinator's current membership view.
func FetchNodes(ctx context.Context, coordAddr string) ([]NodeInfo, error) {
	var resp struct {
		Nodes []NodeInfo `json:"nodes"`
	}
	if err := GetJSON(ctx, coordAddr+"/nodes", &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}
