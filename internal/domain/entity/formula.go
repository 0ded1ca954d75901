package entity

// RecognitionExplanation accompanies every successful recognition response
const RecognitionExplanation = "This is the recognized mathematical formula in LaTeX notation. It can be rendered using a LaTeX renderer."

// WelcomeMessage is returned by the root endpoint
const WelcomeMessage = "Welcome to Mathematical Formula Recognition API. Use /docs for API documentation."

// Recognition is the result of running the recognition model on one image
type Recognition struct {
	Formula string `json:"formula"`
	ModelID string `json:"model_id"`
	Cached  bool   `json:"-"`
}

// Solution is the result of running the solver model on one formula
type Solution struct {
	Text    string `json:"solution"`
	ModelID string `json:"model_id"`
}
