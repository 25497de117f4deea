package graphql

import (
	"PollTally/control"
	"PollTally/model"
	"errors"

	"github.com/graphql-go/graphql"
)

// ErrAlreadyVoted 当前会话已经投过票
var ErrAlreadyVoted = errors.New("already voted")

// 定义GraphQL中的选项票数类型
var optionVotesType = graphql.NewObject(
	graphql.ObjectConfig{
		Name: "OptionVotes",
		Fields: graphql.Fields{
			"option": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(model.OptionVotes).Option, nil
				},
			},
			"votes": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(model.OptionVotes).Votes, nil
				},
			},
		},
	},
)

var tallyType = graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(optionVotesType)))

func newQueryType(svc *control.PollService) *graphql.Object {
	return graphql.NewObject(
		graphql.ObjectConfig{
			Name: "Query",
			Fields: graphql.Fields{
				"votes": &graphql.Field{
					Type: tallyType,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return svc.GetVotes(p.Context).Ordered(), nil
					},
				},
				"hasVoted": &graphql.Field{
					Type: graphql.NewNonNull(graphql.Boolean),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return svc.HasVoted(p.Context), nil
					},
				},
				"options": &graphql.Field{
					Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String))),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return model.Options, nil
					},
				},
			},
		},
	)
}

func newMutationType(svc *control.PollService) *graphql.Object {
	return graphql.NewObject(
		graphql.ObjectConfig{
			Name: "Mutation",
			Fields: graphql.Fields{
				// vote 投票后标记已投票；已投过票时返回错误，没有计票的选项不标记
				"vote": &graphql.Field{
					Type: tallyType,
					Args: graphql.FieldConfigArgument{
						"option": &graphql.ArgumentConfig{
							Type: graphql.NewNonNull(graphql.String),
						},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						option, _ := p.Args["option"].(string)
						if svc.HasVoted(p.Context) {
							return nil, ErrAlreadyVoted
						}
						tally, recorded, err := svc.CastVote(p.Context, option)
						if err != nil {
							return nil, err
						}
						// 只有真正计票后才标记已投票
						if recorded {
							if err := svc.SetVoted(p.Context); err != nil {
								return nil, err
							}
						}
						return tally.Ordered(), nil
					},
				},
				"resetVote": &graphql.Field{
					Type: graphql.NewNonNull(graphql.Boolean),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						if err := svc.ResetVote(p.Context); err != nil {
							return false, err
						}
						return true, nil
					},
				},
			},
		},
	)
}

// NewGraphQLSchema 将查询类型和变更类型组合成一个完整的schema
func NewGraphQLSchema(svc *control.PollService) (graphql.Schema, error) {
	return graphql.NewSchema(
		graphql.SchemaConfig{
			Query:    newQueryType(svc),
			Mutation: newMutationType(svc),
		},
	)
}
