package models

func (a Account) GetCompanyId() string {
	return a.CompanyId
}

func (c Contact) GetCompanyId() string {
	return c.CompanyId
}

func (t Transaction) GetCompanyId() string {
	return t.CompanyId
}

func (lt TransactionLine) GetCompanyId() string {
	return lt.CompanyId
}

func (i Invoice) GetCompanyId() string {
	return i.CompanyId
}

func (b Bill) GetCompanyId() string {
	return b.CompanyId
}

func (a ReceivableAllocation) GetCompanyId() string {
	return a.CompanyId
}

func (a PayableAllocation) GetCompanyId() string {
	return a.CompanyId
}

func (r AllocationRule) GetCompanyId() string {
	return r.CompanyId
}

func (i BankFeedItem) GetCompanyId() string {
	return i.CompanyId
}

func (b BankFeedBatch) GetCompanyId() string {
	return b.CompanyId
}

func (m ReconciliationMatch) GetCompanyId() string {
	return m.CompanyId
}

func (s TransactionNumberSeries) GetCompanyId() string {
	return s.CompanyId
}

func (l AuditLog) GetCompanyId() string {
	return l.CompanyId
}

func (u User) GetCompanyId() string {
	return u.CompanyId
}
