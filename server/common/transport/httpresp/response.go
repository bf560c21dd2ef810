package httpresp

const (
	ErrUserIDRequired   = "userId is required"
	ErrQueryRequired    = "q is required"
	ErrSearchDegraded   = "semantic search is temporarily unavailable"
	ErrInternal         = "internal server error"
	ErrNotFound         = "not found"
	ErrDuplicateSend    = "duplicate client_msg_id"
	ErrNameAndEmail     = "name and email are required"
	ErrEmailInvalid     = "email is invalid"
	ErrObjectKeyInvalid = "object_key is invalid"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type IDResponse struct {
	ID string `json:"id"`
}

type URLResponse struct {
	URL string `json:"url"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewIDResponse(id string) IDResponse {
	return IDResponse{ID: id}
}

func NewURLResponse(url string) URLResponse {
	return URLResponse{URL: url}
}
