package jobs

// ValidatePayload performs minimal validation on decoded payloads.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	var p RegistrationPayload
	switch v := payload.(type) {
	case RegistrationPayload:
		p = v
	case *RegistrationPayload:
		if v == nil {
			return ErrInvalidJobPayload
		}
		p = *v
	default:
		return ErrPayloadTypeMismatch
	}

	if p.ChangeID == "" || p.EventID <= 0 || p.UserID <= 0 {
		return ErrInvalidJobPayload
	}
	return nil
}
