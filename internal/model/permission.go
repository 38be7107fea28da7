package model

import "fmt"

// TeamEditor は記事・ゲーム・編集者を管理できるチーム。
const TeamEditor = "editor"

// TeamPremium はプレミアム会員のチーム。
const TeamPremium = "premium"

// Role は権限の主体を表す文字列（any, user:<id>, team:<id>）。
type Role string

// RoleAny は全員を表す。
func RoleAny() Role { return "any" }

// RoleUser は特定ユーザーを表す。
func RoleUser(userID string) Role { return Role("user:" + userID) }

// RoleTeam は特定チームを表す。
func RoleTeam(teamID string) Role { return Role("team:" + teamID) }

func permission(action string, role Role) string {
	return fmt.Sprintf("%s(\"%s\")", action, role)
}

// PermissionRead などはドキュメント・バケットに付与する権限文字列を返す。
func PermissionRead(role Role) string   { return permission("read", role) }
func PermissionWrite(role Role) string  { return permission("write", role) }
func PermissionCreate(role Role) string { return permission("create", role) }
func PermissionUpdate(role Role) string { return permission("update", role) }
func PermissionDelete(role Role) string { return permission("delete", role) }

// EditorialPermissions は編集部が管理するドキュメントの権限。
func EditorialPermissions() []string {
	team := RoleTeam(TeamEditor)
	return []string{
		PermissionRead(RoleAny()),
		PermissionWrite(team),
		PermissionUpdate(team),
		PermissionDelete(team),
	}
}

// OwnerPermissions はユーザーが作成したフォーラムのドキュメントの権限。
func OwnerPermissions(userID string) []string {
	user := RoleUser(userID)
	return []string{
		PermissionRead(RoleAny()),
		PermissionUpdate(user),
		PermissionDelete(user),
	}
}

// HasPermission はpermsにpermが含まれるかを判定する。
func HasPermission(perms []string, perm string) bool {
	for _, p := range perms {
		if p == perm {
			return true
		}
	}
	return false
}
