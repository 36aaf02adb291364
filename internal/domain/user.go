package domain

// UserRecord is the private user document looked up by phone number.
// DeviceToken is nil when the user has no registered device.
type UserRecord struct {
	UID         string
	PhoneNumber string
	DeviceToken *string
}

// HasDeviceToken reports whether a push address is registered for the user.
func (u UserRecord) HasDeviceToken() bool {
	return u.DeviceToken != nil && *u.DeviceToken != ""
}

// Token returns the device token or "" when absent.
func (u UserRecord) Token() string {
	if !u.HasDeviceToken() {
		return ""
	}
	return *u.DeviceToken
}
