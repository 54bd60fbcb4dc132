package model

type Member struct {
	Alias  string `json:"Alias"`
	Status string `json:"Status"`
}

type GetMembersResponse struct {
	Members []Member `json:"Members"`
}

type GetTopologyResponse struct {
	Master          string   `json:"Master"`
	MasterAvailable bool     `json:"MasterAvailable"`
	Slaves          []string `json:"Slaves"`
	Deactivated     []string `json:"Deactivated"`
	Version         uint64   `json:"Version"`
}

type ResolveResponse struct {
	Alias     string `json:"Alias,omitempty"`
	Available bool   `json:"Available"`
	Error     string `json:"Error,omitempty"`
}
