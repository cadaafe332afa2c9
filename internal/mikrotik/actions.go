package mikrotik

// The helpers below re-list the target row immediately before mutating it,
// so the record id they act on is never older than the current connection.
// A reported found=false means there was nothing to act on.

// SetSecretByName applies fields to the secret currently named name.
func SetSecretByName(cmd Commands, name string, fields map[string]string) (bool, error) {
	secrets, err := cmd.ListSecrets(name)
	if err != nil {
		return false, err
	}
	if len(secrets) == 0 {
		return false, nil
	}
	return true, cmd.SetSecret(secrets[0].ID, fields)
}

// SetSecretDisabled is SetSecretByName for the disabled flag.
func SetSecretDisabled(cmd Commands, name string, disabled bool) (bool, error) {
	return SetSecretByName(cmd, name, map[string]string{"disabled": formatBool(disabled)})
}

// RemoveSecretByName removes the secret currently named name.
func RemoveSecretByName(cmd Commands, name string) (bool, error) {
	secrets, err := cmd.ListSecrets(name)
	if err != nil {
		return false, err
	}
	if len(secrets) == 0 {
		return false, nil
	}
	return true, cmd.RemoveSecret(secrets[0].ID)
}

// RemoveActiveByName terminates every active session for name.
func RemoveActiveByName(cmd Commands, name string) (bool, error) {
	sessions, err := cmd.ListActive(name)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if err := cmd.RemoveActive(s.ID); err != nil {
			return true, err
		}
	}
	return len(sessions) > 0, nil
}

// RemoveInterfaceByName removes the interface currently named name.
func RemoveInterfaceByName(cmd Commands, name string) (bool, error) {
	ifaces, err := cmd.ListInterfaces(name)
	if err != nil {
		return false, err
	}
	if len(ifaces) == 0 {
		return false, nil
	}
	return true, cmd.RemoveInterface(ifaces[0].ID)
}

// InterfaceCounters returns the named interface, or nil if it does not exist.
func InterfaceCounters(cmd Commands, name string) (*Interface, error) {
	ifaces, err := cmd.ListInterfaces(name)
	if err != nil {
		return nil, err
	}
	if len(ifaces) == 0 {
		return nil, nil
	}
	return &ifaces[0], nil
}
