package ledger

const (
	MsgProductAdded    = "Product Added Successfully"
	MsgProductUpdated  = "Product Updated Successfully"
	MsgProductDeleted  = "Product Deleted Successfully"
	MsgProductNotFound = "Product not found"
	MsgOrderNotFound   = "Product Not Found"
)

// Result is what every ledger operation returns. Failures carry the kind and the
// underlying error; nothing is raised past the operation.
type Result struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Err     error     `json:"-"`
}

func succeed(msg string) Result {
	return Result{Success: true, Message: msg}
}

// fail builds a failed result. An empty msg uses the error text.
func fail(err error, msg string) Result {
	kind := KindOf(err)
	if msg == "" {
		if kind == KindValidation || kind == KindInsufficientStock {
			msg = err.Error()
		} else {
			msg = "Error: " + err.Error()
		}
	}
	return Result{Success: false, Message: msg, Kind: kind, Err: err}
}
