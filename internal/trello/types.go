package trello

// Board is a Trello board as returned by the REST API.
type Board struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Desc   string `json:"desc,omitempty"`
	Closed bool   `json:"closed,omitempty"`
	URL    string `json:"url,omitempty"`
}

// List is a Trello list belonging to a board.
type List struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IDBoard string `json:"idBoard,omitempty"`
	Closed  bool   `json:"closed,omitempty"`
}

// Card is a Trello card belonging to a list.
type Card struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Desc   string `json:"desc,omitempty"`
	IDList string `json:"idList,omitempty"`
	Due    string `json:"due,omitempty"`
	URL    string `json:"url,omitempty"`
}
