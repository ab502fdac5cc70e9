package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/http/middleware"
	"codearena/internal/user/repository"
	"codearena/internal/user/service"
	"codearena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// UserController handles account, session and profile endpoints.
type UserController struct {
	authService    *service.AuthService
	profileService *service.ProfileService
	cookieSecure   bool
}

// NewUserController creates a new UserController.
func NewUserController(authService *service.AuthService, profileService *service.ProfileService, cookieSecure bool) *UserController {
	return &UserController{authService: authService, profileService: profileService, cookieSecure: cookieSecure}
}

// Register handles self registration.
func (h *UserController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.authService.Register(c.Request.Context(), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setTokenCookie(c, result.Token, result.ExpiresAt)
	response.Created(c, "Registered Successfully", toAuthResponse(result))
}

// Login handles credential login.
func (h *UserController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid Credentials")
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Email:    req.email(),
		Password: req.Password,
		IP:       c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setTokenCookie(c, result.Token, result.ExpiresAt)
	response.SuccessWithMessage(c, "Logged In Successfully", toAuthResponse(result))
}

// Logout revokes the current token and clears the cookie.
func (h *UserController) Logout(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	if err := h.authService.Logout(c.Request.Context(), identity); err != nil {
		response.Error(c, err)
		return
	}
	h.clearTokenCookie(c)
	response.SuccessWithMessage(c, "Logged Out Successfully", nil)
}

// AdminRegister lets an admin create an account with an explicit role.
// The admin's own session cookie is left untouched.
func (h *UserController) AdminRegister(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	input := req.toInput()
	input.Role = repository.UserRole(strings.ToLower(strings.TrimSpace(req.Role)))
	result, err := h.authService.AdminRegister(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "User Registered Successfully", gin.H{"user": toUserInfo(result.User)})
}

// DeleteProfile removes the caller's account.
func (h *UserController) DeleteProfile(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	if err := h.authService.DeleteProfile(c.Request.Context(), identity); err != nil {
		response.Error(c, err)
		return
	}
	h.clearTokenCookie(c)
	response.SuccessWithMessage(c, "Deleted Successfully", nil)
}

// Check returns the caller's basic info.
func (h *UserController) Check(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	info, err := h.authService.Check(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Valid User", gin.H{"user": toUserInfo(info)})
}

// GetProfile returns the caller's profile aggregate.
func (h *UserController) GetProfile(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	profile, err := h.profileService.GetProfile(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, profile)
}

// GetProfileByID returns any user's profile aggregate. Only the owner and
// admins see the email address and age.
func (h *UserController) GetProfileByID(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.BadRequest(c, "Invalid user id")
		return
	}
	profile, err := h.profileService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if identity, ok := middleware.CurrentIdentity(c); ok && (identity.UserID == userID || identity.IsAdmin()) {
		response.Success(c, profile)
		return
	}
	response.Success(c, profile.Public())
}

// Update changes profile fields of the user in the path.
func (h *UserController) Update(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.BadRequest(c, "Invalid user id")
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	user, err := h.profileService.Update(c.Request.Context(), identity, userID, repository.UserUpdate{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Age:          req.Age,
		Bio:          req.Bio,
		GitHub:       req.GitHub,
		Location:     req.Location,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMessage(c, "Profile updated successfully", toUserResponse(user))
}

// AvatarUploadURL presigns an avatar upload for the caller.
func (h *UserController) AvatarUploadURL(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		response.Unauthorized(c, "Token is not present")
		return
	}
	upload, err := h.profileService.AvatarUploadURL(c.Request.Context(), identity.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, upload)
}

func (h *UserController) setTokenCookie(c *gin.Context, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookieName, token, maxAge, "/", "", h.cookieSecure, true)
}

func (h *UserController) clearTokenCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookieName, "", -1, "/", "", h.cookieSecure, true)
}

// RegisterRequest defines registration payload.
type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName"`
	EmailID   string `json:"emailId"`
	Email     string `json:"email"`
	Password  string `json:"password" binding:"required"`
	Age       *int   `json:"age"`
	Role      string `json:"role"`
}

func (r RegisterRequest) toInput() service.RegisterInput {
	email := r.EmailID
	if email == "" {
		email = r.Email
	}
	return service.RegisterInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     email,
		Password:  r.Password,
		Age:       r.Age,
	}
}

// LoginRequest defines login payload.
type LoginRequest struct {
	EmailID  string `json:"emailId"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) email() string {
	if r.EmailID != "" {
		return r.EmailID
	}
	return r.Email
}

// UpdateProfileRequest defines the mutable profile fields.
type UpdateProfileRequest struct {
	FirstName    *string `json:"firstName"`
	LastName     *string `json:"lastName"`
	Age          *int    `json:"age"`
	Bio          *string `json:"bio"`
	GitHub       *string `json:"github"`
	Location     *string `json:"location"`
	ProfileImage *string `json:"profileImage"`
}

// UserInfo defines basic user info payload.
type UserInfo struct {
	ID        int64  `json:"_id"`
	FirstName string `json:"firstName"`
	EmailID   string `json:"emailId"`
	Role      string `json:"role"`
}

// AuthResponse defines register and login payload.
type AuthResponse struct {
	User      UserInfo  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// UserResponse is the public view of a user row.
type UserResponse struct {
	ID           int64     `json:"_id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	EmailID      string    `json:"emailId"`
	Role         string    `json:"role"`
	Age          *int      `json:"age,omitempty"`
	Bio          string    `json:"bio"`
	GitHub       string    `json:"github"`
	Location     string    `json:"location"`
	ProfileImage string    `json:"profileImage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toUserInfo(info service.UserInfo) UserInfo {
	return UserInfo{
		ID:        info.ID,
		FirstName: info.FirstName,
		EmailID:   info.Email,
		Role:      string(info.Role),
	}
}

func toAuthResponse(result service.AuthResult) AuthResponse {
	return AuthResponse{
		User:      toUserInfo(result.User),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}
}

func toUserResponse(user *repository.User) UserResponse {
	return UserResponse{
		ID:           user.ID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		EmailID:      user.Email,
		Role:         string(user.Role),
		Age:          user.Age,
		Bio:          user.Bio,
		GitHub:       user.GitHub,
		Location:     user.Location,
		ProfileImage: user.ProfileImage,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}
