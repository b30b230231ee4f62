package models

import (
	"context"
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/quartzbooks/ledger_backend/config"
	"bitbucket.org/quartzbooks/ledger_backend/utils"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index" json:"company_id"`
	Username  string    `gorm:"size:100;not null;unique" json:"username" binding:"required"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100;unique" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Password  string    `gorm:"size:255;not null" json:"password"`
	IsActive  *bool     `gorm:"not null" json:"is_active"`
	Role      UserRole  `gorm:"type:enum('A', 'O', 'U');default:U" json:"role"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	CompanyId string   `json:"company_id"`
	Username  string   `json:"username" binding:"required"`
	Name      string   `json:"name" binding:"required"`
	Email     string   `json:"email"`
	Phone     string   `json:"phone"`
	Password  string   `json:"password" binding:"required"`
	IsActive  *bool    `json:"is_active" binding:"required"`
	Role      UserRole `json:"role"`
}

/*
caches:
	User:$username
*/

func (user User) RemoveInstanceRedis() error {
	if err := config.RemoveRedisKey("User:" + user.Username); err != nil {
		return err
	}
	return nil
}

func (user User) RemoveAllRedis() error {
	return nil
}

type LoginInfo struct {
	Token            string   `json:"token"`
	Name             string   `json:"name"`
	Role             UserRole `json:"role"`
	CompanyName      string   `json:"company_name"`
	BaseCurrencyCode string   `json:"base_currency_code"`
	Timezone         string   `json:"timezone"`
}

func (result *User) PrepareGive() {
	result.Password = ""
}

// destroy current session
func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok || token == "" {
		return false, errors.New("token is required")
	}
	err := config.RemoveRedisKey("Token:" + fmt.Sprint(token))
	if err != nil {
		return false, nil
	}
	return true, nil
}

func Login(ctx context.Context, username string, password string) (*LoginInfo, error) {

	db := config.GetDB()
	var err error
	var result LoginInfo

	user := User{}

	// get User info
	exists, err := config.GetRedisObject("User:"+username, &user)
	if err != nil {
		return &result, err
	}
	if !exists {
		err = db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Take(&user).Error
		if err != nil {
			return &result, errors.New("invalid username or password")
		}
	}

	// check login credentials
	err = utils.ComparePassword(user.Password, password)
	if err != nil && err == bcrypt.ErrMismatchedHashAndPassword {
		return &result, errors.New("invalid username or password")
	}

	isActive := *user.IsActive
	if !isActive {
		return &result, errors.New("user is disabled")
	}

	// generate token & response
	token := uuid.New()
	result.Token = token.String()
	result.Name = user.Username
	result.Role = user.Role

	if user.CompanyId != "" {
		company, err := GetCompanyById(ctx, user.CompanyId)
		if err != nil {
			return nil, err
		}
		result.CompanyName = company.Name
		result.BaseCurrencyCode = company.BaseCurrencyCode
		result.Timezone = company.Timezone
	}

	// store token in redis
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil {
		tokenLifespan = 24
	}
	if err := config.SetRedisValue("Token:"+token.String(), user.Username, time.Duration(tokenLifespan)*time.Hour); err != nil {
		return &result, err
	}

	return &result, nil
}

func GetAllUsers(ctx context.Context) ([]*User, error) {

	db := config.GetDB()
	var results []*User

	if err := db.WithContext(ctx).Find(&results).Error; err != nil {
		return results, errors.New("no user")
	}

	for i, u := range results {
		u.Password = ""
		results[i] = u
	}

	return results, nil
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	db := config.GetDB()
	var count int64

	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return &User{}, errors.New("invalid email address")
	}

	err := db.WithContext(ctx).Model(&User{}).Where("username = ?", input.Username).Or("email = ?", input.Email).Count(&count).Error
	if err != nil {
		return &User{}, err
	}
	if count > 0 {
		return &User{}, errors.New("duplicate username or email")
	}

	hashedPassword, err := utils.HashPassword(input.Password)
	if err != nil {
		return &User{}, err
	}
	input.Email = strings.ToLower(input.Email)

	role := input.Role
	if role == "" {
		role = UserRoleUser
	}

	user := User{
		Username:  html.EscapeString(strings.TrimSpace(input.Username)),
		CompanyId: input.CompanyId,
		Name:      input.Name,
		Email:     utils.NilIfEmpty(input.Email),
		Phone:     input.Phone,
		Password:  string(hashedPassword),
		IsActive:  input.IsActive,
		Role:      role,
	}

	err = db.WithContext(ctx).Create(&user).Error
	if err != nil {
		return &User{}, err
	}
	user.Password = ""
	return &user, nil
}

// CreateDefaultOwner creates the initial owner user when a company is created.
// The generated password must be changed on first login.
func CreateDefaultOwner(tx *gorm.DB, ctx context.Context, companyId string, email string, companyName string) (*User, error) {

	username := email
	if username == "" {
		username = "owner@" + strings.ToLower(strings.ReplaceAll(companyName, " ", ""))
	}

	hashedPassword, err := utils.HashPassword(uuid.NewString())
	if err != nil {
		return nil, err
	}

	owner := User{
		Username:  username,
		CompanyId: companyId,
		Name:      companyName + " Owner",
		Email:     utils.NilIfEmpty(strings.ToLower(email)),
		Password:  string(hashedPassword),
		IsActive:  utils.NewTrue(),
		Role:      UserRoleOwner,
	}
	if err := tx.WithContext(ctx).Create(&owner).Error; err != nil {
		return nil, err
	}
	return &owner, nil
}

func GetUser(ctx context.Context, id int) (*User, error) {

	result, err := utils.FetchSingleModel[User](ctx, id)
	if err != nil {
		return nil, err
	}
	result.Password = ""
	return result, nil
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {

	db := config.GetDB()
	var result User

	err := db.WithContext(ctx).Where("username = ?", username).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &result, nil
}

func UpdateUser(ctx context.Context, id int, input *NewUser) (*User, error) {

	db := config.GetDB()

	var user User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	if input.Email != "" && !utils.IsValidEmail(input.Email) {
		return nil, errors.New("invalid email address")
	}

	updates := map[string]interface{}{
		"Name":  input.Name,
		"Phone": input.Phone,
	}
	if input.Email != "" {
		updates["Email"] = strings.ToLower(input.Email)
	}
	if input.Password != "" {
		hashedPassword, err := utils.HashPassword(input.Password)
		if err != nil {
			return nil, err
		}
		updates["Password"] = string(hashedPassword)
	}
	if input.IsActive != nil {
		updates["IsActive"] = input.IsActive
	}

	if err := db.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
		return nil, err
	}

	// caching
	if err := user.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	user.Password = ""
	return &user, nil
}
