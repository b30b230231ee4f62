package models

import (
	"bitbucket.org/quartzbooks/ledger_backend/utils"
)

type RedisCleaner interface {
	RemoveInstanceRedis() error // remove one
	RemoveAllRedis() error      // remove list & map if exists
}

// remove both item & list + map
func RemoveRedisBoth[T RedisCleaner](obj T) error {
	if err := obj.RemoveInstanceRedis(); err != nil {
		return err
	}
	if err := obj.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (obj Account) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Account](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Account) RemoveAllRedis() error {
	if err := utils.RemoveRedisList[Account](obj.CompanyId); err != nil {
		return err
	}
	return nil
}

func (obj Contact) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Contact](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Contact) RemoveAllRedis() error {
	if err := utils.RemoveRedisList[Contact](obj.CompanyId); err != nil {
		return err
	}
	return nil
}

func (obj AllocationRule) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[AllocationRule](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj AllocationRule) RemoveAllRedis() error {
	if err := utils.RemoveRedisList[AllocationRule](obj.CompanyId); err != nil {
		return err
	}
	return nil
}

func (obj TransactionNumberSeries) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[TransactionNumberSeries](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj TransactionNumberSeries) RemoveAllRedis() error {
	return nil
}

func (obj Company) RemoveInstanceRedis() error {
	return obj.RemoveRedis()
}

func (obj Company) RemoveAllRedis() error {
	return utils.ClearRedisAdmin[Company]()
}
