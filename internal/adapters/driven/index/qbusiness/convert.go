package qbusiness

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/qbusiness/types"

	"github.com/custodia-labs/jira-q-sync/internal/core/domain"
)

// sourceURIAttribute is the reserved attribute holding the document link.
const sourceURIAttribute = "_source_uri"

// toDocument maps a domain document onto the service's document shape.
func toDocument(doc *domain.Document) types.Document {
	out := types.Document{
		Id:          aws.String(doc.ID),
		Title:       aws.String(doc.Title),
		Content:     &types.DocumentContentMemberBlob{Value: []byte(doc.Content)},
		ContentType: types.ContentTypePlainText,
		Attributes:  toAttributes(doc),
		AccessConfiguration: &types.AccessConfiguration{
			AccessControls: []types.AccessControl{{
				Principals:     toPrincipals(doc.ACL.Principals),
				MemberRelation: types.MemberRelationOr,
			}},
			MemberRelation: types.MemberRelationOr,
		},
	}
	return out
}

func toAttributes(doc *domain.Document) []types.DocumentAttribute {
	attrs := make([]types.DocumentAttribute, 0, len(doc.Attributes)+1)
	hasSource := false
	for _, a := range doc.Attributes {
		if a.Name == sourceURIAttribute {
			hasSource = true
		}
		value := toAttributeValue(a.Value)
		if value == nil {
			continue
		}
		attrs = append(attrs, types.DocumentAttribute{Name: aws.String(a.Name), Value: value})
	}
	if !hasSource && doc.SourceURI != "" {
		attrs = append(attrs, types.DocumentAttribute{
			Name:  aws.String(sourceURIAttribute),
			Value: &types.DocumentAttributeValueMemberStringValue{Value: doc.SourceURI},
		})
	}
	return attrs
}

func toAttributeValue(v domain.AttributeValue) types.DocumentAttributeValue {
	switch v.Type {
	case domain.AttrString:
		return &types.DocumentAttributeValueMemberStringValue{Value: v.String}
	case domain.AttrStringList:
		return &types.DocumentAttributeValueMemberStringListValue{Value: v.StringList}
	case domain.AttrLong:
		return &types.DocumentAttributeValueMemberLongValue{Value: v.Long}
	case domain.AttrDate:
		return &types.DocumentAttributeValueMemberDateValue{Value: v.Date}
	default:
		return nil
	}
}

func toPrincipals(principals []domain.Principal) []types.Principal {
	out := make([]types.Principal, 0, len(principals))
	for _, p := range principals {
		switch p.Kind {
		case domain.PrincipalUser:
			out = append(out, &types.PrincipalMemberUser{Value: types.PrincipalUser{
				Id:             aws.String(p.ID),
				Access:         types.ReadAccessTypeAllow,
				MembershipType: types.MembershipTypeIndex,
			}})
		case domain.PrincipalGroup:
			out = append(out, &types.PrincipalMemberGroup{Value: types.PrincipalGroup{
				Name:           aws.String(p.ID),
				Access:         types.ReadAccessTypeAllow,
				MembershipType: types.MembershipTypeIndex,
			}})
		}
	}
	return out
}

// toGroupMembers lists user members by id and nested groups by name.
func toGroupMembers(group domain.GroupMembership) *types.GroupMembers {
	members := &types.GroupMembers{
		MemberUsers:  make([]types.MemberUser, 0, len(group.Users)),
		MemberGroups: make([]types.MemberGroup, 0, len(group.Groups)),
	}
	for _, u := range group.Users {
		if u.Kind != domain.PrincipalUser || u.ID == "" {
			continue
		}
		members.MemberUsers = append(members.MemberUsers, types.MemberUser{
			UserId: aws.String(u.ID),
			Type:   types.MembershipTypeIndex,
		})
	}
	for _, g := range group.Groups {
		if g == "" || g == group.Name {
			continue
		}
		members.MemberGroups = append(members.MemberGroups, types.MemberGroup{
			GroupName: aws.String(g),
			Type:      types.MembershipTypeIndex,
		})
	}
	return members
}

// failedResults converts the service's failure list into document results.
func failedResults(failed []types.FailedDocument) []domain.DocumentResult {
	if len(failed) == 0 {
		return nil
	}
	out := make([]domain.DocumentResult, 0, len(failed))
	for _, f := range failed {
		r := domain.DocumentResult{
			ID:     aws.ToString(f.Id),
			Status: domain.DocumentFailed,
		}
		if f.Error != nil {
			r.ErrorCode = string(f.Error.ErrorCode)
			r.ErrorMessage = aws.ToString(f.Error.ErrorMessage)
		}
		out = append(out, r)
	}
	return out
}

// toSyncJob maps a job history entry onto the domain job.
func toSyncJob(j *types.DataSourceSyncJob) domain.SyncJob {
	job := domain.SyncJob{
		ExecutionID: aws.ToString(j.ExecutionId),
		StartedAt:   aws.ToTime(j.StartTime),
		EndedAt:     aws.ToTime(j.EndTime),
	}
	switch j.Status {
	case types.DataSourceSyncJobStatusSyncing, types.DataSourceSyncJobStatusSyncingIndexing,
		types.DataSourceSyncJobStatusStopping:
		job.State = domain.JobInProgress
	case types.DataSourceSyncJobStatusSucceeded, types.DataSourceSyncJobStatusIncomplete:
		job.State = domain.JobCompleted
	case types.DataSourceSyncJobStatusFailed:
		job.State = domain.JobFailed
	case types.DataSourceSyncJobStatusAborted:
		job.State = domain.JobStopped
	default:
		job.State = domain.JobStarted
	}
	if j.Error != nil {
		job.Error = aws.ToString(j.Error.ErrorMessage)
	}
	return job
}
