package schema

// Engine couples parsing and validation for callers that hold schemas in
// source form
type Engine struct {
	parser    *Parser
	validator *Validator
}

// NewEngine creates a new schema engine
func NewEngine(opts ...ValidatorOption) *Engine {
	return &Engine{
		parser:    NewParser(),
		validator: NewValidator(opts...),
	}
}

// GetParser returns the parser instance
func (e *Engine) GetParser() *Parser {
	return e.parser
}

// GetValidator returns the validator instance
func (e *Engine) GetValidator() *Validator {
	return e.validator
}

// Compile parses src into a schema
func (e *Engine) Compile(src interface{}) (*Schema, error) {
	return e.parser.Parse(src)
}

// Check parses src and validates data against it, returning the first
// SchemaError or ValidationError
func (e *Engine) Check(data interface{}, src interface{}) error {
	s, err := e.parser.Parse(src)
	if err != nil {
		return err
	}
	return e.validator.Validate(data, s)
}

// Report parses src and collects every violation in data
func (e *Engine) Report(data interface{}, src interface{}) (*ValidationResult, error) {
	s, err := e.parser.Parse(src)
	if err != nil {
		return nil, err
	}
	return e.validator.ValidateAll(data, s), nil
}
