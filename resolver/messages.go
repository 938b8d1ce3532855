package resolver

// Client-facing messages
const (
	msgPostNotFound     = "Post not found"
	msgPostAlreadyLiked = "Post already liked"
	msgPostNotLiked     = "Post not liked"

	msgNotAuthorizedPublish    = "You are not authorized to publish a blog"
	msgNotAuthorizedUpdate     = "You are not authorized to update a blog"
	msgNotAuthorizedUpdateThis = "You are not authorized to update this blog"
	msgNotAuthorizedDelete     = "You are not authorized to delete a blog"
	msgNotAuthorizedDeleteThis = "You are not authorized to delete this blog"
	msgNotAuthorizedLike       = "You are not authorized to like a post"
	msgNotAuthorizedUnlike     = "You are not authorized to unlike a post"

	msgUnauthorized   = "Unauthorized"
	msgUserIDRequired = "User id is required"
)
