package gate

// Action describes the kind of operation a role wants to perform on a resource.
type Action string

const (
	ActionView        Action = "view"
	ActionList        Action = "list"
	ActionCreate      Action = "create"
	ActionAcknowledge Action = "acknowledge"
)
