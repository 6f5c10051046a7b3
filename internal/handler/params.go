package handler

type BuildParams struct {
	Payload string `form:"payload"`
	Rebuild bool   `form:"rebuild"`
}

type StatusParams struct {
	JSONP string `query:"jsonp"`
}

// PushPayload is the subset of a push webhook body used to pick the branch.
type PushPayload struct {
	Ref   string `json:"ref"`
	After string `json:"after"`
}
