package filters

// Params carries decode parameters extracted from a stream dictionary's
// /DecodeParms entry. Values are plain Go types (int, int64, float64, bool)
// produced by the caller when flattening the dictionary.
type Params map[string]interface{}

// getIntParam extracts an integer parameter from params, returning
// defaultValue if the parameter is missing or is not numeric.
func getIntParam(params Params, key string, defaultValue int) int {
	if params == nil {
		return defaultValue
	}

	obj, ok := params[key]
	if !ok {
		return defaultValue
	}

	switch v := obj.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}

// getBoolParam extracts a boolean parameter from params, returning
// defaultValue if the parameter is missing or is not a bool.
func getBoolParam(params Params, key string, defaultValue bool) bool {
	if params == nil {
		return defaultValue
	}

	obj, ok := params[key]
	if !ok {
		return defaultValue
	}

	if v, ok := obj.(bool); ok {
		return v
	}
	return defaultValue
}
