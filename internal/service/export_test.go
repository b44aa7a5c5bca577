package service

// Armed reports whether an end timer is pending for the campaign.
func (m *LifecycleManager) Armed(id string) bool {
	return m.armed(id)
}
